package rpcservice

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/entropycollective/quiverdb/internal/kverrors"
	"github.com/entropycollective/quiverdb/internal/kvdb"
	"github.com/entropycollective/quiverdb/internal/rpc"
)

func (s *Service) registerMatch(reg *rpc.Registry) {
	reg.Register("match_prefix", s.matchPrefix)
	reg.Register("match_regex", s.matchRegex)
	reg.Register("match_similar", s.matchSimilar)
}

// matchResults encodes ordered keys as numbered output fields ("0", "1",
// ...), the "order field" the remote client uses to reconstruct result
// order, plus a "num" count.
func matchResults(keys []string) map[string]string {
	out := make(map[string]string, len(keys)+1)
	for i, k := range keys {
		out[strconv.Itoa(i)] = k
	}
	out["num"] = strconv.Itoa(len(keys))
	return out
}

func matchMax(in map[string]string) int {
	if v, ok := in["max"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return -1
}

func (s *Service) matchPrefix(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	prefix, ok := in["prefix"]
	if !ok {
		return nil, rpc.RVInvalid
	}
	max := matchMax(in)
	var matched []string
	err := s.Backend.Iterate(ctx, func(key, value []byte) (kvdb.VisitResult, error) {
		if strings.HasPrefix(string(key), prefix) {
			matched = append(matched, string(key))
		}
		if max >= 0 && len(matched) >= max {
			return kvdb.ResultNOP, errStopIteration
		}
		return kvdb.ResultNOP, nil
	})
	if err != nil && err != errStopIteration {
		return nil, kverrors.ToReturnValue(err)
	}
	return matchResults(matched), rpc.RVSuccess
}

func (s *Service) matchRegex(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	pattern, ok := in["regex"]
	if !ok {
		return nil, rpc.RVInvalid
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, rpc.RVInvalid
	}
	max := matchMax(in)
	var matched []string
	err = s.Backend.Iterate(ctx, func(key, value []byte) (kvdb.VisitResult, error) {
		if re.MatchString(string(key)) {
			matched = append(matched, string(key))
		}
		if max >= 0 && len(matched) >= max {
			return kvdb.ResultNOP, errStopIteration
		}
		return kvdb.ResultNOP, nil
	})
	if err != nil && err != errStopIteration {
		return nil, kverrors.ToReturnValue(err)
	}
	return matchResults(matched), rpc.RVSuccess
}

// matchSimilar is a bounded edit-distance filter over keys, not a text
// index: every key within "range" Levenshtein edits of "origin" matches.
func (s *Service) matchSimilar(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	origin, ok := in["origin"]
	if !ok {
		return nil, rpc.RVInvalid
	}
	dist := 1
	if v, ok := in["range"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			dist = n
		}
	}
	max := matchMax(in)
	var matched []string
	err := s.Backend.Iterate(ctx, func(key, value []byte) (kvdb.VisitResult, error) {
		if levenshtein(origin, string(key)) <= dist {
			matched = append(matched, string(key))
		}
		if max >= 0 && len(matched) >= max {
			return kvdb.ResultNOP, errStopIteration
		}
		return kvdb.ResultNOP, nil
	})
	if err != nil && err != errStopIteration {
		return nil, kverrors.ToReturnValue(err)
	}
	return matchResults(matched), rpc.RVSuccess
}

// errStopIteration is an internal sentinel returned by a VisitFunc to
// end an Iterate walk early once max results are collected; it never
// reaches the caller as a surfaced error.
var errStopIteration = kverrors.New(kverrors.CodeInternal, "match: max results reached")

func levenshtein(a, b string) int {
	ar, br := []rune(a), []rune(b)
	prev := make([]int, len(br)+1)
	curr := make([]int, len(br)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ar); i++ {
		curr[0] = i
		for j := 1; j <= len(br); j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			min := del
			if ins < min {
				min = ins
			}
			if sub < min {
				min = sub
			}
			curr[j] = min
		}
		prev, curr = curr, prev
	}
	return prev[len(br)]
}
