package search

// stopwords is the fixed bilingual stopword set used by the baseline
// keyword extraction. Checked against lowercased tokens.
var stopwords = map[string]bool{}

func init() {
	for _, w := range []string{
		// Chinese
		"的", "了", "是", "在", "我", "有", "和", "就", "不", "人", "都",
		"一", "个", "上", "也", "很", "到", "说", "要", "去", "你", "会",
		"着", "没有", "看", "好", "自己", "这", "那", "什么", "怎么", "如何",
		"想", "请", "帮", "告诉", "介绍", "了解", "学习", "使用",
		// English
		"the", "a", "an", "is", "are", "was", "were", "be", "been",
		"being", "have", "has", "had", "do", "does", "did", "will",
		"would", "could", "should", "may", "might", "must", "shall",
		"can", "need", "dare", "ought", "used", "to", "of", "in", "for",
		"on", "with", "at", "by", "from", "about", "as", "into", "through",
		"during", "before", "after", "above", "below", "between", "under",
		"again", "further", "then", "once", "here", "there", "when",
		"where", "why", "how", "all", "each", "few", "more", "most",
		"other", "some", "such", "no", "nor", "not", "only", "own",
		"same", "so", "than", "too", "very", "s", "t", "just", "don",
		"now", "i", "me", "my", "myself", "we", "our", "ours", "you",
		"your", "he", "him", "his", "she", "her", "it", "its", "they",
		"them", "their", "what", "which", "who", "whom", "this", "that",
	} {
		stopwords[w] = true
	}
}
