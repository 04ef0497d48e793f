package domain

// TokenInfo is one candidate token at a single generation step.
//
// Probability is always a true probability in [0,1], already exponentiated
// and normalised where the backend allows it. Logit carries whatever the
// backend exposed: a raw logit for dense backends, a log-probability for
// backends that never reveal logits.
type TokenInfo struct {
	Token       string  `json:"token"`
	TokenID     int     `json:"token_id"`
	Logit       float64 `json:"logit"`
	Probability float64 `json:"probability"`
}
