package textsplit

import "fmt"

const (
	DefaultChunkSize = 500
	DefaultOverlap   = 50
)

// NaiveSplit 按固定长度切分文本，相邻块之间保留 overlap 个字符的重叠。
// 按 rune 计数，避免把多字节字符切到一半。
func NaiveSplit(text string, chunkSize, overlap int) ([]string, error) {
	if chunkSize <= overlap {
		return nil, fmt.Errorf("chunk_size must be greater than overlap, got chunk_size=%d overlap=%d", chunkSize, overlap)
	}

	runes := []rune(text)
	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
		start = end - overlap
		if start < 0 {
			start = 0
		}
	}
	return chunks, nil
}
