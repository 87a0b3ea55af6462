package main

import (
	"github.com/eleven-am/voice-capture/internal/bootstrap"
)

func main() {
	bootstrap.Run()
}
