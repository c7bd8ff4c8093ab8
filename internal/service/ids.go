package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

func randomBase36(n int) string {
	var sb strings.Builder
	max := big.NewInt(int64(len(base36)))
	for i := 0; i < n; i++ {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			sb.WriteByte('0')
			continue
		}
		sb.WriteByte(base36[v.Int64()])
	}
	return sb.String()
}

func newBookID(now time.Time) string {
	return "book_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + randomBase36(9)
}

// shortID is the 8 char suffix used in stored file names.
func shortID() string {
	return uuid.NewString()[:8]
}

func newSessionID() string {
	return uuid.NewString()
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
