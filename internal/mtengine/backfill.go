package mtengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/valpere/xliffqe/internal"
)

// Backfill translates the source of every segment without MT and marks the
// result with a "backfill / <engine>" provider. It returns the number of
// segments filled. Language codes on a segment win over the defaults.
func Backfill(ctx context.Context, eng Engine, segs []internal.Segment, sourceLang, targetLang string, log logrus.FieldLogger) (int, error) {
	type pair struct{ src, tgt string }
	groups := map[pair][]int{}
	var order []pair

	for i, seg := range segs {
		if seg.HasMT || seg.Source == "" {
			continue
		}
		p := pair{src: firstNonEmpty(seg.SourceLang, sourceLang), tgt: firstNonEmpty(seg.TargetLang, targetLang)}
		if _, ok := groups[p]; !ok {
			order = append(order, p)
		}
		groups[p] = append(groups[p], i)
	}

	filled := 0
	for _, p := range order {
		idx := groups[p]
		if p.tgt == "" {
			return filled, fmt.Errorf("cannot backfill %d segments: target language unknown", len(idx))
		}

		texts := make([]string, len(idx))
		for j, i := range idx {
			texts[j] = segs[i].Source
		}

		if log != nil {
			log.WithFields(logrus.Fields{
				"engine":   eng.Name(),
				"segments": len(texts),
				"pair":     p.src + "→" + p.tgt,
			}).Info("backfilling missing MT")
		}

		translated, err := eng.Translate(ctx, texts, p.src, p.tgt)
		if err != nil {
			return filled, fmt.Errorf("failed to backfill with %s: %w", eng.Name(), err)
		}
		if len(translated) != len(idx) {
			return filled, fmt.Errorf("%s returned %d translations for %d texts", eng.Name(), len(translated), len(idx))
		}

		for j, i := range idx {
			mt := strings.TrimSpace(translated[j])
			if mt == "" {
				continue
			}
			segs[i].MT = mt
			segs[i].HasMT = true
			segs[i].MTProvider = ProviderPrefix + eng.Name()
			filled++
		}
	}
	return filled, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func normalizeCode(code string) string {
	return strings.ReplaceAll(strings.TrimSpace(code), "_", "-")
}
