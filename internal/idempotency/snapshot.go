package idempotency

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/sergeiliashko/zero2prod/internal/model"
)

// HeaderPair 响应头的名值对；保序，允许同名重复
type HeaderPair struct {
	Name  string `json:"name"`
	Value []byte `json:"value"`
}

// SavedResponse 响应快照：状态码、有序响应头、原始响应体。
// 重放时必须逐字节还原，所以不持有任何框架类型。
type SavedResponse struct {
	StatusCode int
	Headers    []HeaderPair
	Body       []byte
}

// EncodeSnapshot 把快照编码成账本的三个快照列
func EncodeSnapshot(resp SavedResponse) (statusCode int16, headers []byte, body []byte, err error) {
	if resp.StatusCode < 100 || resp.StatusCode > 599 {
		return 0, nil, nil, fmt.Errorf("invalid response status code: %d", resp.StatusCode)
	}
	headers, err = json.Marshal(resp.Headers)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("encode response headers: %w", err)
	}
	body = resp.Body
	if body == nil {
		body = []byte{}
	}
	return int16(resp.StatusCode), headers, body, nil
}

// DecodeSnapshot 从账本行还原快照；快照列为 NULL（处理中）时报错
func DecodeSnapshot(rec *model.IdempotencyRecord) (SavedResponse, error) {
	if rec == nil || rec.ResponseStatusCode == nil {
		return SavedResponse{}, errors.New("idempotency record has no saved response")
	}
	var headers []HeaderPair
	if len(rec.ResponseHeaders) > 0 {
		if err := json.Unmarshal(rec.ResponseHeaders, &headers); err != nil {
			return SavedResponse{}, fmt.Errorf("decode response headers: %w", err)
		}
	}
	return SavedResponse{
		StatusCode: int(*rec.ResponseStatusCode),
		Headers:    headers,
		Body:       rec.ResponseBody,
	}, nil
}
