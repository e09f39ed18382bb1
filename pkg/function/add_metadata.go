package function

import (
	"context"
	"maps"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/omeyang/xworkshop/pkg/observability/xlog"
)

// CustomPropKey AddMetadata 附加的属性名。
const CustomPropKey = "MyCustomProp"

var niceWords = []string{"pleasant", "delightful", "delicious", "enjoyable", "sweet", "good", "pleasing", "satisfying"}

// AddMetadata 原样转发消息，保留 key 与属性，并附加
// MyCustomProp = <随机形容词>-<时间>。
type AddMetadata struct {
	now  func() time.Time
	word func() string
}

func NewAddMetadata() *AddMetadata {
	return &AddMetadata{
		now:  time.Now,
		word: func() string { return niceWords[rand.IntN(len(niceWords))] },
	}
}

func (f *AddMetadata) Process(ctx context.Context, fctx *Context, rec Record) (*Output, error) {
	fctx.Logger().Info(ctx, "message arrived",
		xlog.Topic(strings.Join(fctx.InputTopics(), ", ")),
		xlog.Key(rec.Key),
		xlog.Count(int64(len(rec.Payload))))

	props := maps.Clone(rec.Properties)
	if props == nil {
		props = make(map[string]string, 1)
	}
	props[CustomPropKey] = f.word() + "-" + f.now().Format("2006-01-02 15:04:05.000")
	return &Output{Key: rec.Key, Properties: props, Payload: rec.Payload}, nil
}
