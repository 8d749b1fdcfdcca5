package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"github.com/healthy-futures/contest-api/pkg/config"
)

func TestContestWindowFields(t *testing.T) {
	fields := contestWindowFields(config.ContestConfig{Year: 2026, Month: time.September})

	assert.Len(t, fields, 2)
	assert.Equal(t, zapcore.Int64Type, fields[0].Type)
	assert.Equal(t, int64(2026), fields[0].Integer)
	assert.Equal(t, zapcore.Int64Type, fields[1].Type)
	assert.Equal(t, int64(9), fields[1].Integer)
}
