package main

import (
	"context"
	"fmt"
	"time"

	"github.com/codewandler/realtime-go/tool"
)

type timeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"IANA time zone, e.g. Europe/Berlin"`
}

func getTime(_ context.Context, args timeArgs) (any, error) {
	loc := time.Local
	if args.Timezone != "" {
		l, err := time.LoadLocation(args.Timezone)
		if err != nil {
			return nil, fmt.Errorf("unknown time zone %q", args.Timezone)
		}
		loc = l
	}
	return map[string]any{"time": time.Now().In(loc).Format(time.RFC3339)}, nil
}

func demoTools() ([]tool.Tool, error) {
	def, h, err := tool.New("get_time", "Get the current time", getTime)
	if err != nil {
		return nil, err
	}
	return []tool.Tool{{Definition: def, Handler: h}}, nil
}
