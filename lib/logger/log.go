package logger

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"math/rand"

	"go.uber.org/zap"
	"moul.io/zapfilter"
)

// Filter rules, see zapfilter. e.g. "*:*,-peer* warn+:peer*" to quiet
// the read loops while keeping their warnings.
const rule = "*"

var Log *zap.Logger

func Named(s string) *zap.Logger {
	return Log.Named(s)
}

type ctxKey string

var kConnID = ctxKey("connID")

func Ctx(prev *zap.Logger, ctx context.Context) *zap.Logger {
	if v, ok := ctx.Value(kConnID).(string); ok {
		return prev.With(zap.String("connID", v))
	} else {
		return prev
	}
}

func NewConnID(ctx context.Context) context.Context {
	w := make([]byte, 8)
	v := rand.Uint64()
	binary.BigEndian.PutUint64(w, v)
	f := hex.EncodeToString(w)
	return context.WithValue(ctx, kConnID, f)
}

func init() {
	devLog, _ := zap.NewDevelopment()
	core := devLog.Core()
	Log = zap.New(zapfilter.NewFilteringCore(core, zapfilter.MustParseRules(rule)))
}
