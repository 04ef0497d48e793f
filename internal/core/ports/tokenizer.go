package ports

// TokenDecoder turns token ids back into text. The dense-logits path cannot
// produce candidate text without one.
type TokenDecoder interface {
	Decode(ids []int) string
}

// TokenEncoder is the optional inverse, exposed by deterministic tokenizers.
type TokenEncoder interface {
	Encode(text string) []int
}

// TokenDecoderFunc adapts a plain function to TokenDecoder.
type TokenDecoderFunc func(ids []int) string

func (f TokenDecoderFunc) Decode(ids []int) string { return f(ids) }
