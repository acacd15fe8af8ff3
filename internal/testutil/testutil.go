// Package testutil builds synthetic traffic datasets for package tests.
package testutil

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/theblitlabs/parity-ids/pkg/logger"
)

// DisableLogging silences everything below error level.
func DisableLogging() {
	logger.InitWithMode(logger.LogModeTest)
}

// TrafficCSV renders n connection records with numeric and categorical
// features and a "label" column of normal/attack. Every attackEvery-th row
// is an attack; attacks carry large byte counts and mostly S0 flags, so the
// classes are learnable but not trivially separable on one column.
func TrafficCSV(n, attackEvery int, seed int64) string {
	rng := rand.New(rand.NewSource(seed))
	protocols := []string{"tcp", "udp", "icmp"}

	var b strings.Builder
	b.WriteString("duration,protocol_type,src_bytes,dst_bytes,count,flag,label\n")
	for i := 0; i < n; i++ {
		attack := attackEvery > 0 && i%attackEvery == 0
		protocol := protocols[rng.Intn(len(protocols))]
		duration := rng.Intn(50)
		src := 100 + rng.Intn(400)
		dst := 200 + rng.Intn(800)
		count := 1 + rng.Intn(10)
		flag, label := "SF", "normal"
		if attack {
			src = 5000 + rng.Intn(3000)
			dst = rng.Intn(50)
			count = 80 + rng.Intn(40)
			flag, label = "S0", "attack"
			if rng.Intn(5) == 0 {
				flag = "REJ"
			}
		}
		fmt.Fprintf(&b, "%d,%s,%d,%d,%d,%s,%s\n", duration, protocol, src, dst, count, flag, label)
	}
	return b.String()
}

// NumericCSV renders n records with five numeric features f1..f5 and a
// numeric 0/1 "label" column holding positives ones. The positive class is
// shifted on f1 and f2.
func NumericCSV(n, positives int, seed int64) string {
	rng := rand.New(rand.NewSource(seed))

	var b strings.Builder
	b.WriteString("f1,f2,f3,f4,f5,label\n")
	for i := 0; i < n; i++ {
		label := 0
		shift := 0.0
		if i < positives {
			label = 1
			shift = 4
		}
		fmt.Fprintf(&b, "%.4f,%.4f,%.4f,%.4f,%.4f,%d\n",
			rng.NormFloat64()+shift,
			rng.NormFloat64()-shift,
			rng.NormFloat64(),
			rng.Float64()*10,
			rng.NormFloat64()*3,
			label)
	}
	return b.String()
}

// WriteFile writes content to name inside a per-test temp dir and returns the path.
func WriteFile(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}
