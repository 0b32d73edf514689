package main

import "github.com/jsherman999/parknow/internal/daemon"

func main() { daemon.Main() }
