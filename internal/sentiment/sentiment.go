package sentiment

import "strings"

// Classification 表示聚合后的市场情绪分类。
type Classification string

const (
	Bullish Classification = "bullish"
	Bearish Classification = "bearish"
	Neutral Classification = "neutral"
)

// 分类阈值：均值超过 +0.3 视为看多，低于 -0.3 视为看空。
const (
	bullishThreshold = 0.3
	bearishThreshold = -0.3
)

// maxKeywords 限制聚合结果中保留的关键词数量。
const maxKeywords = 5

// Sample 保存单条文本的打分结果。创建后不再修改，聚合完成即丢弃。
type Sample struct {
	Text       string
	Score      float64
	Confidence float64
	Keywords   []string
}

// Aggregate 是一次管道运行中对某个资产的情绪聚合结果。
type Aggregate struct {
	Score          float64        `json:"score"`
	Confidence     float64        `json:"confidence"`
	Classification Classification `json:"classification"`
	Keywords       []string       `json:"keywords,omitempty"`
	SampleCount    int            `json:"sample_count"`
}

// cueClass 描述一类情绪线索：命中的词条、分值增量、置信度下限与关键词标签。
// dampen 类不做加法，而是把累计分值向零收缩。
type cueClass struct {
	cues     []string
	delta    float64
	floor    float64
	keywords []string
	dampen   float64
}

// lexicon 按固定顺序求值；收缩类排在最后，作用于之前累计的分值。
var lexicon = []cueClass{
	{cues: []string{"bullish", "bull run", "🚀"}, delta: 0.8, floor: 0.8, keywords: []string{"bullish", "momentum"}},
	{cues: []string{"adoption", "institutional"}, delta: 0.7, floor: 0.7, keywords: []string{"adoption", "institutional"}},
	{cues: []string{"viral", "exploding"}, delta: 0.9, floor: 0.9, keywords: []string{"viral", "growth"}},
	{cues: []string{"breakout", "support"}, delta: 0.6, keywords: []string{"technical", "breakout"}},
	{cues: []string{"bearish", "resistance"}, delta: -0.8, floor: 0.8, keywords: []string{"bearish", "resistance"}},
	{cues: []string{"selling", "decline"}, delta: -0.6, keywords: []string{"selling", "decline"}},
	{cues: []string{"sideways", "consolidating"}, dampen: 0.5, keywords: []string{"sideways", "consolidation"}},
}

// baseConfidence 是未命中任何置信度下限时的样本置信度。
const baseConfidence = 0.5

// ScoreSnippet 用加法裁剪词典模型对单条文本打分。
// 每个命中的线索类贡献固定增量并抬升置信度下限；
// 收缩类把累计分值按系数向零靠拢；最终分值裁剪到 [-1, 1]。
func ScoreSnippet(snippet string) Sample {
	text := strings.ToLower(snippet)
	sample := Sample{Text: snippet, Confidence: baseConfidence}

	for _, class := range lexicon {
		if !matchesAny(text, class.cues) {
			continue
		}
		if class.dampen > 0 {
			sample.Score *= class.dampen
		} else {
			sample.Score += class.delta
		}
		if class.floor > sample.Confidence {
			sample.Confidence = class.floor
		}
		sample.Keywords = append(sample.Keywords, class.keywords...)
	}

	sample.Score = clamp(sample.Score, -1, 1)
	return sample
}

// Reduce 把若干样本归并为一个聚合信号。空输入返回零分、
// 零置信度的中性结果，供下游降级为 hold。
func Reduce(samples []Sample) Aggregate {
	if len(samples) == 0 {
		return Aggregate{Classification: Neutral}
	}

	var scoreSum, confidenceSum float64
	keywords := make([]string, 0, maxKeywords)
	seen := make(map[string]struct{})
	for _, sample := range samples {
		scoreSum += sample.Score
		confidenceSum += sample.Confidence
		for _, keyword := range sample.Keywords {
			if _, ok := seen[keyword]; ok {
				continue
			}
			seen[keyword] = struct{}{}
			if len(keywords) < maxKeywords {
				keywords = append(keywords, keyword)
			}
		}
	}

	n := float64(len(samples))
	agg := Aggregate{
		Score:       scoreSum / n,
		Confidence:  confidenceSum / n,
		Keywords:    keywords,
		SampleCount: len(samples),
	}
	agg.Classification = Classify(agg.Score)
	return agg
}

// Classify 根据阈值把聚合分值映射为情绪分类。
func Classify(score float64) Classification {
	switch {
	case score > bullishThreshold:
		return Bullish
	case score < bearishThreshold:
		return Bearish
	default:
		return Neutral
	}
}

func matchesAny(text string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(text, cue) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
