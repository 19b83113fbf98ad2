package main

import "icalevents/cmd/icalevents/cmd"

func main() {
	cmd.Execute()
}
