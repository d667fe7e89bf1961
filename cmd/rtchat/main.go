// Command rtchat talks to the realtime API from a terminal, either as a text
// chat or by sending a recorded PCM16 file and saving the spoken reply.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
