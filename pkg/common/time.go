package common

import (
	"fmt"
	"time"
)

// Rome is the time zone tariffs are published and bills are issued in.
var Rome = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		panic(fmt.Errorf("failed to load italian time location: %w", err))
	}
	return loc
}()
