package coordinator

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/lhecker/tumblr-backup/apiclient"
)

// jqQueryCache avoids re-parsing the same --filter expression for every
// post in a run; gojq.Parse is the expensive part, Run is cheap.
var (
	jqQueryCacheMu sync.Mutex
	jqQueryCache   = map[string]*gojq.Code{}
)

// evalJQFilter implements spec.md §4.6's jq filter step: the post's JSON is
// passed through the user-supplied jq program, which must produce a
// truthy value for the post to survive.
func evalJQFilter(expr string, post *apiclient.Post) (bool, error) {
	code, err := compileJQ(expr)
	if err != nil {
		return false, err
	}

	raw := post.RawJSON()
	if len(raw) == 0 {
		raw, err = json.Marshal(post)
		if err != nil {
			return false, err
		}
	}

	var input interface{}
	if err := json.Unmarshal(raw, &input); err != nil {
		return false, err
	}

	iter := code.Run(input)
	v, ok := iter.Next()
	if !ok {
		return false, nil
	}
	if err, ok := v.(error); ok {
		return false, err
	}

	return truthy(v), nil
}

func compileJQ(expr string) (*gojq.Code, error) {
	jqQueryCacheMu.Lock()
	defer jqQueryCacheMu.Unlock()

	if code, ok := jqQueryCache[expr]; ok {
		return code, nil
	}

	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("coordinator: bad --filter expression: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("coordinator: bad --filter expression: %w", err)
	}

	jqQueryCache[expr] = code
	return code, nil
}

func truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	default:
		return true
	}
}
