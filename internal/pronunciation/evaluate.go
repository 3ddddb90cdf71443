// Package pronunciation estimates pronunciation and fluency sub-scores from speech
// recognizer segment timing and confidence metadata.
package pronunciation

import (
	"math"
	"strings"
)

// Scoring constants. They are hand-tuned heuristics and must stay as they are for
// results to remain comparable across attempts.
const (
	longPauseGapSec     = 1.2
	noSpeechWeight      = 0.8
	defaultAvgLogProb   = -1.2
	defaultNoSpeechProb = 0.2
	logProbFloor        = -2.0
	logProbSpan         = 1.8
	fragFreeSegments    = 10
	fragStep            = 0.02
	penaltyFloor        = 0.6
	longPauseStep       = 0.08
	pauseRatioZero      = 0.55
	targetWPM           = 140.0
	wpmBand             = 60.0
	wpmScoreFloor       = 0.3
	wpmScoreUnknown     = 0.4
	prosodyPunctScale   = 18.0
	prosodyMin          = 0.45
	prosodyMax          = 0.75
	notePauseRatio      = 0.35
	noteLongPauses      = 2
	noteFastWPM         = 190.0
	noteSlowWPM         = 95.0
	noteIntelligibility = 5
)

const (
	NoteLongPauses     = "Pauses are a bit long. Try to reduce silent gaps and keep sentences flowing."
	NoteMultiplePauses = "There were multiple long pauses. Practice speaking in longer chunks."
	NoteFast           = "Your pace may be a little fast. Slow down slightly for clarity."
	NoteSlow           = "Your pace may be slow. Try to increase speed while keeping clarity."
	NoteClarity        = "Some parts may be hard to catch. Focus on clear consonants and word endings."
	NotePositive       = "Overall clear and understandable. Keep consistency and add natural intonation."

	Caveat = "AI pronunciation scoring is approximate. Results may vary depending on microphone quality, background noise, and transcription accuracy. Use this as a reference."
)

// Evaluate scores one recording from its transcript and recognizer segments.
// It is pure and never fails: malformed numbers are treated as absent and empty
// input degrades to a zero-duration result.
func Evaluate(text string, segments []Segment) Result {
	segs := sanitize(segments)

	durationSec := 0.0
	if len(segs) > 0 {
		durationSec = math.Max(0, segs[len(segs)-1].End)
	}
	words := CountWords(text)

	speakingTime := 0.0
	for _, s := range segs {
		dur := math.Max(0, s.End-s.Start)
		nsp := 0.0
		if s.NoSpeechProb != nil {
			nsp = *s.NoSpeechProb
		}
		speakingTime += dur * (1 - noSpeechWeight*clamp(nsp, 0, 1))
	}

	pauseTime := math.Max(0, durationSec-speakingTime)
	pauseRatio := 0.0
	if durationSec > 0 {
		pauseRatio = pauseTime / durationSec
	}

	longPauseCount := 0
	for i := 1; i < len(segs); i++ {
		if segs[i].Start-segs[i-1].End >= longPauseGapSec {
			longPauseCount++
		}
	}

	wpm := 0.0
	if speakingTime > 0 {
		wpm = float64(words) / (speakingTime / 60)
	}

	avgLogProb, noSpeechAvg := confidenceMeans(segs)

	logprob01 := clamp((avgLogProb-logProbFloor)/logProbSpan, 0, 1)
	nospeech01 := 1 - clamp(noSpeechAvg, 0, 1)

	fragPenalty01 := 1.0
	if len(segs) > fragFreeSegments {
		fragPenalty01 = math.Max(penaltyFloor, 1-float64(len(segs)-fragFreeSegments)*fragStep)
	}
	longPausePenalty01 := math.Max(penaltyFloor, 1-float64(longPauseCount)*longPauseStep)

	intelligibility01 := 0.55*logprob01 + 0.25*nospeech01 + 0.10*fragPenalty01 + 0.10*longPausePenalty01
	intelligibility := to10(intelligibility01)

	pause01 := 1 - clamp(pauseRatio/pauseRatioZero, 0, 1)
	fluency := to10(0.65*pause01 + 0.35*wpmScore(wpm))

	accuracy := to10(0.75*logprob01 + 0.25*intelligibility01)

	punct := strings.Count(text, ".") + strings.Count(text, ",") + strings.Count(text, "!") +
		strings.Count(text, "?") + strings.Count(text, ";")
	prosody01 := clamp(float64(punct)/float64(max(1, words))*prosodyPunctScale, prosodyMin, prosodyMax)
	prosody := to10(prosody01)

	overall := clamp0to10(0.4*float64(intelligibility) + 0.3*float64(fluency) +
		0.2*float64(accuracy) + 0.1*float64(prosody))

	return Result{
		Method:          MethodAudio,
		Overall:         overall,
		Intelligibility: intelligibility,
		Fluency:         fluency,
		Accuracy:        accuracy,
		Prosody:         prosody,
		Metrics: Metrics{
			DurationSec:    roundTo(durationSec, 2),
			Words:          words,
			WPM:            roundTo(wpm, 1),
			PauseRatio:     roundTo(pauseRatio, 3),
			LongPauseCount: longPauseCount,
		},
		Notes:  notes(pauseRatio, longPauseCount, wpm, intelligibility),
		Caveat: Caveat,
	}
}

// CountWords returns the number of whitespace-delimited tokens in text.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

func confidenceMeans(segs []Segment) (avgLogProb, noSpeech float64) {
	var lpSum, nsSum float64
	var lpN, nsN int
	for _, s := range segs {
		if s.AvgLogProb != nil {
			lpSum += *s.AvgLogProb
			lpN++
		}
		if s.NoSpeechProb != nil {
			nsSum += *s.NoSpeechProb
			nsN++
		}
	}
	avgLogProb, noSpeech = defaultAvgLogProb, defaultNoSpeechProb
	if lpN > 0 {
		avgLogProb = lpSum / float64(lpN)
	}
	if nsN > 0 {
		noSpeech = nsSum / float64(nsN)
	}
	return avgLogProb, noSpeech
}

func wpmScore(wpm float64) float64 {
	if wpm <= 0 {
		return wpmScoreUnknown
	}
	raw := 1 - math.Min(1, math.Abs(wpm-targetWPM)/wpmBand)
	return math.Max(wpmScoreFloor, raw)
}

func notes(pauseRatio float64, longPauseCount int, wpm float64, intelligibility int) []string {
	var out []string
	if pauseRatio >= notePauseRatio {
		out = append(out, NoteLongPauses)
	}
	if longPauseCount >= noteLongPauses {
		out = append(out, NoteMultiplePauses)
	}
	if wpm > noteFastWPM {
		out = append(out, NoteFast)
	}
	if wpm > 0 && wpm < noteSlowWPM {
		out = append(out, NoteSlow)
	}
	if intelligibility <= noteIntelligibility {
		out = append(out, NoteClarity)
	}
	if len(out) == 0 {
		out = append(out, NotePositive)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clamp0to10(v float64) int {
	if !isFinite(v) {
		return 0
	}
	return int(clamp(math.Round(v), 0, 10))
}

// to10 maps a 0..1 score onto the integer 0..10 scale.
func to10(x01 float64) int {
	if !isFinite(x01) {
		return 0
	}
	return clamp0to10(clamp(x01, 0, 1) * 10)
}

func roundTo(v float64, places int) float64 {
	if !isFinite(v) {
		return 0
	}
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
