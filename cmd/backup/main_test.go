package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackupKey(t *testing.T) {
	ts := time.Date(2025, 3, 1, 4, 5, 6, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "backups/backup-2025-03-01T03-05-06Z.sql.gz", backupKey(ts))
}
