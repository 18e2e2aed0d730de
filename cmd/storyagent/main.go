// Command storyagent is the command line front end of the wallet agent.
package main

import "os"

func main() {
	os.Exit(NewRunner(os.Stdout, os.Stderr).Run(os.Args[1:]))
}
