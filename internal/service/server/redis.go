package server

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"drchat/internal/model"
	"drchat/internal/utils/log"
)

func queueKey(to string) string {
	return fmt.Sprintf("queue:%s", to)
}

// GetMessagesFromCache drains the offline queue of to. Entries that are not
// valid messages are dropped.
func (s *HttpServer) GetMessagesFromCache(ctx context.Context, to string) ([][]byte, error) {
	vals, err := s.queue.Drain(ctx, queueKey(to))
	if err != nil {
		return nil, err
	}

	res := make([][]byte, 0, len(vals))
	for _, v := range vals {
		var m model.Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			log.Warn("dropping undecodable queued frame", zap.String("user", to), zap.Error(err))
			continue
		}
		res = append(res, []byte(v))
	}
	return res, nil
}

func (s *HttpServer) PutMessagesToCache(ctx context.Context, to string, messages []*model.Message) error {
	if len(messages) == 0 {
		return nil
	}
	vals := make([]any, 0, len(messages))
	for _, m := range messages {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		vals = append(vals, data)
	}

	return s.queue.RPush(ctx, queueKey(to), vals...)
}
