// Command mp4demux drives a local MP4 file through the streaming demuxer
// and prints its media info and sample summary to stdout.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
