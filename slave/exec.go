package slave

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"time"
)

// ExecWorkFunc returns a WorkFunc that runs argv once per item. The
// item payload is piped to the command's stdin and its stdout becomes
// the item's result. The item identifier is exposed as BISKIT_ITEM_ID
// and the run's initialization payload as BISKIT_INIT.
//
// A non-zero exit fails the whole chunk. itemTimeout bounds each
// invocation; zero means no per-item bound beyond the chunk context.
func ExecWorkFunc(argv []string, itemTimeout time.Duration) WorkFunc {
	return func(ctx context.Context, init []byte, items map[string][]byte) (map[string][]byte, error) {
		if len(argv) == 0 {
			return nil, fmt.Errorf("slave: exec: empty command")
		}

		ids := make([]string, 0, len(items))
		for itemID := range items {
			ids = append(ids, itemID)
		}
		sort.Strings(ids)

		out := make(map[string][]byte, len(items))
		for _, itemID := range ids {
			result, err := runItem(ctx, argv, itemID, init, items[itemID], itemTimeout)
			if err != nil {
				return nil, fmt.Errorf("slave: exec %s: item %s: %w", argv[0], itemID, err)
			}
			out[itemID] = result
		}
		return out, nil
	}
}

func runItem(ctx context.Context, argv []string, itemID string, init, payload []byte, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(os.Environ(),
		"BISKIT_ITEM_ID="+itemID,
		"BISKIT_INIT="+string(init),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}
