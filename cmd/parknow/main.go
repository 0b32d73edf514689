package main

import "github.com/jsherman999/parknow/internal/cli"

func main() { cli.Main() }
