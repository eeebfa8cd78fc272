package contract

// Chunker: 将页序列切分为带页码的有界窗口（纯计算，无错误路径）。
// 空输入返回空序列。
type Chunker interface {
	Chunk(pages []Page) []Chunk
}
