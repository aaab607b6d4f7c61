package main

import (
	"fmt"

	spoolstorage "github.com/aduanasoft/vucemd/subsystem/spool/storage"
	spooldiskv "github.com/aduanasoft/vucemd/subsystem/spool/storage/diskv"
	spoolinmem "github.com/aduanasoft/vucemd/subsystem/spool/storage/inmem"
)

func parseStorage(name, dsn string) (spoolstorage.Storage, error) {
	switch name {
	case "inmem":
		return spoolinmem.New(), nil
	case "file", "diskv":
		if dsn == "" {
			dsn = "db"
		}
		return spooldiskv.New(dsn), nil
	}
	return nil, fmt.Errorf("unknown storage: %s", name)
}
