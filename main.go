package main

import "github.com/lockplane/ksmigrate/cmd"

func main() {
	cmd.Execute()
}
