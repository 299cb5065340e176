package main

import (
	"log"

	"github.com/hopehouse/reminders/cmd/server"
	"github.com/hopehouse/reminders/internal/adapters/config"

	_ "time/tzdata"
)

func main() {
	cfg := config.Get()
	s, err := server.New(cfg)
	if err != nil {
		log.Panic(err)
	}

	if err = s.Start(); err != nil {
		log.Panic(err)
	}
}
