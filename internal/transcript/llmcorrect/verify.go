package llmcorrect

import "strings"

// hunk is one region of the token-level diff between the raw transcript
// and the model's corrected text. Either common holds tokens present in
// both sequences, or orig/repl describe a substitution.
type hunk struct {
	common []string
	orig   []string
	repl   []string
}

// anchor pairs an original-token index with its corrected-token index for
// one token of the longest common subsequence.
type anchor struct{ o, c int }

// lcsAnchors returns the LCS of the two token slices as index pairs, in
// order. Utterances are a sentence or two, so the O(m*n) table is cheap.
func lcsAnchors(a, b []string) []anchor {
	m, n := len(a), len(b)
	if m == 0 || n == 0 {
		return nil
	}

	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			switch {
			case a[i-1] == b[j-1]:
				dp[i][j] = dp[i-1][j-1] + 1
			case dp[i-1][j] >= dp[i][j-1]:
				dp[i][j] = dp[i-1][j]
			default:
				dp[i][j] = dp[i][j-1]
			}
		}
	}

	if dp[m][n] == 0 {
		return nil
	}
	anchors := make([]anchor, dp[m][n])
	i, j, k := m, n, dp[m][n]-1
	for i > 0 && j > 0 {
		switch {
		case a[i-1] == b[j-1]:
			anchors[k] = anchor{o: i - 1, c: j - 1}
			i--
			j--
			k--
		case dp[i-1][j] >= dp[i][j-1]:
			i--
		default:
			j--
		}
	}
	return anchors
}

// diffTokens aligns the two token sequences on their longest common
// subsequence and returns the alternating runs of common and substituted
// tokens, in order.
func diffTokens(orig, corr []string) []hunk {
	var hunks []hunk
	oi, ci := 0, 0
	for _, a := range lcsAnchors(orig, corr) {
		if oi < a.o || ci < a.c {
			hunks = append(hunks, hunk{orig: orig[oi:a.o], repl: corr[ci:a.c]})
		}
		if k := len(hunks); k > 0 && hunks[k-1].common != nil {
			hunks[k-1].common = append(hunks[k-1].common, orig[a.o])
		} else {
			hunks = append(hunks, hunk{common: []string{orig[a.o]}})
		}
		oi, ci = a.o+1, a.c+1
	}
	if oi < len(orig) || ci < len(corr) {
		hunks = append(hunks, hunk{orig: orig[oi:], repl: corr[ci:]})
	}
	return hunks
}

// spanPunct is the punctuation stripped from span edges before matching.
// Vocabulary terms arrive bare ("Grevis") while transcript tokens carry
// sentence punctuation and quoting around them.
const spanPunct = ".,;:!?\"'()"

// spanKey canonicalizes a token span for lookup against the declared
// corrections: joined, lowercased, punctuation stripped from both edges so
// `Grevis.` and `"Grevis"` both match a term declared as `Grevis`.
func spanKey(tokens []string) string {
	return strings.ToLower(strings.Trim(strings.Join(tokens, " "), spanPunct))
}

// verifyCorrectedText cross-references the actual token-level changes
// between original and corrected against the declared corrections. Change
// hunks with no matching declaration are reverted to the original tokens.
// Returns the verified text and only the confirmed corrections.
func verifyCorrectedText(original, corrected string, corrections []Correction) (string, []Correction) {
	if original == corrected {
		return original, corrections
	}

	declared := make(map[[2]string]Correction, len(corrections))
	for _, c := range corrections {
		declared[[2]string{spanKey([]string{c.Original}), spanKey([]string{c.Corrected})}] = c
	}

	var out []string
	var verified []Correction
	for _, h := range diffTokens(strings.Fields(original), strings.Fields(corrected)) {
		if h.common != nil {
			out = append(out, h.common...)
			continue
		}
		if c, ok := declared[[2]string{spanKey(h.orig), spanKey(h.repl)}]; ok {
			out = append(out, h.repl...)
			verified = append(verified, c)
		} else {
			out = append(out, h.orig...)
		}
	}
	return strings.Join(out, " "), verified
}
