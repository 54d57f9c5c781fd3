package main

import "github.com/wemarka/wmai/cmd"

func main() {
	cmd.Execute()
}
