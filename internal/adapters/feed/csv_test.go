package feed_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afuentes7/kalshibot/internal/adapters/feed"
)

func writeLog(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const sampleLog = `time,ticker,yes_bid,yes_ask,no_bid,no_ask
2026-01-09 08:00:00,KXHIGHLAX-26JAN09-B68,49,51,49,51
2026-01-09 08:00:05,KXHIGHLAX-26JAN09-B68,,51,49,
2026-01-09 08:00:10,KXHIGHLAX-26JAN09-B68,50,52,48,50
`

func TestCSVSource_ReplaysInOrder(t *testing.T) {
	path := writeLog(t, t.TempDir(), "ticks.csv", sampleLog)
	src, err := feed.NewCSVFile(path, feed.CSVConfig{})
	require.NoError(t, err)
	defer src.Close()

	ctx := context.Background()

	first, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "KXHIGHLAX-26JAN09-B68", first.Ticker)
	assert.Equal(t, 49, first.State.YesBid)
	assert.Equal(t, 51, first.State.YesAsk)
	assert.Equal(t, time.Date(2026, time.January, 9, 8, 0, 0, 0, time.Local), first.Time)
	assert.Equal(t, 1, first.SourceRow)

	// Celdas vacías → lado desconocido (0).
	second, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.State.YesBid)
	assert.Equal(t, 51, second.State.YesAsk)
	assert.Zero(t, second.State.NoAsk)

	_, err = src.Next(ctx)
	require.NoError(t, err)

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestCSVSource_StartEndFilter(t *testing.T) {
	path := writeLog(t, t.TempDir(), "ticks.csv", sampleLog)
	src, err := feed.NewCSVFile(path, feed.CSVConfig{
		Start: time.Date(2026, time.January, 9, 8, 0, 3, 0, time.Local),
		End:   time.Date(2026, time.January, 9, 8, 0, 7, 0, time.Local),
	})
	require.NoError(t, err)
	defer src.Close()

	tick, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.January, 9, 8, 0, 5, 0, time.Local), tick.Time)

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestCSVSource_DirReplaysFilesInNameOrder(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "b_second.csv", "time,ticker,yes_bid,yes_ask,no_bid,no_ask\n2026-01-09 09:00:00,T2,40,42,58,60\n")
	writeLog(t, dir, "a_first.csv", "time,ticker,yes_bid,yes_ask,no_bid,no_ask\n2026-01-09 08:00:00,T1,49,51,49,51\n")

	src, err := feed.NewCSVDir(dir, feed.CSVConfig{})
	require.NoError(t, err)
	defer src.Close()

	ctx := context.Background()
	first, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T1", first.Ticker)

	second, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T2", second.Ticker)
}

func TestCSVSource_BadTimestampIsFatal(t *testing.T) {
	path := writeLog(t, t.TempDir(), "ticks.csv",
		"time,ticker,yes_bid,yes_ask,no_bid,no_ask\ngarbage,T1,49,51,49,51\n")
	src, err := feed.NewCSVFile(path, feed.CSVConfig{})
	require.NoError(t, err)
	defer src.Close()

	_, err = src.Next(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestCSVSource_MissingRequiredColumn(t *testing.T) {
	path := writeLog(t, t.TempDir(), "ticks.csv", "time,yes_bid\n2026-01-09 08:00:00,49\n")
	src, err := feed.NewCSVFile(path, feed.CSVConfig{})
	require.NoError(t, err)
	defer src.Close()

	_, err = src.Next(context.Background())
	require.Error(t, err)
}
