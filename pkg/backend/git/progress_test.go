package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseProgress(t *testing.T) {
	tests := []struct {
		line          string
		expPercentage float64
		expSpeed      string
		expOK         bool
	}{
		{
			line:          "Counting objects:  50% (5/10)",
			expPercentage: 50,
			expOK:         true,
		},
		{
			line:          "Writing objects: 100% (10/10), 1.20 KiB | 2.50 MiB/s, done.",
			expPercentage: 100,
			expSpeed:      "2.50 MiB/s",
			expOK:         true,
		},
		{
			line: "Enumerating objects: 10, done.",
		},
		{
			line: "",
		},
	}

	for _, test := range tests {
		percentage, speed, ok := parseProgress(test.line)
		assert.Equal(t, test.expOK, ok, test.line)
		assert.Equal(t, test.expPercentage, percentage, test.line)
		assert.Equal(t, test.expSpeed, speed, test.line)
	}
}

type progressReport struct {
	percentage float64
	speed      string
}

func TestProgressWriter(t *testing.T) {
	var reports []progressReport
	w := &progressWriter{report: func(percentage float64, speed string) {
		reports = append(reports, progressReport{percentage, speed})
	}}

	// Lines may be split across writes.
	for _, chunk := range []string{
		"Counting objects:  5",
		"0% (1/2)\rCounting objects: 100% (2/2), done.\n",
		"Writing objects:  40% (2/5), 1.2 KiB | 1.2 MiB/s\r",
		"Total 5 (delta 0)",
	} {
		n, err := w.Write([]byte(chunk))
		assert.NoError(t, err)
		assert.Equal(t, len(chunk), n)
	}

	assert.Equal(t, []progressReport{
		{50, ""},
		{100, ""},
		{40, "1.2 MiB/s"},
	}, reports)
}
