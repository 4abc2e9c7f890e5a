package retriever

import (
	errs "tschart/pkg/error"
)

const (
	// ErrInvalidRequest 表示检索请求不合法，如请求项数量不为一。
	ErrInvalidRequest errs.ErrorCode = "INVALID_REQUEST"
	// ErrChunkFailed 表示某个分块请求失败，整个检索作废。
	ErrChunkFailed errs.ErrorCode = "CHUNK_FAILED"
	// ErrAborted 表示检索在分块之间被取消。
	ErrAborted errs.ErrorCode = "RETRIEVAL_ABORTED"
)
