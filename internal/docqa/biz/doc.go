// Package biz implements the document QA pipeline: chunking, indexing,
// retrieval, answer generation and the service facade composing them.
package biz
