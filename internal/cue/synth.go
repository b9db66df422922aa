package cue

import (
	"math"
	"time"
)

const sampleRate = 16000

type toneSpec struct {
	frequencyHz float64
	duration    time.Duration
	volume      float64
}

var (
	connectedPCM = synthesizeCue([]toneSpec{
		{frequencyHz: 660, duration: 70 * time.Millisecond, volume: 0.18},
		{frequencyHz: 990, duration: 90 * time.Millisecond, volume: 0.18},
	})
	disconnectedPCM = synthesizeCue([]toneSpec{
		{frequencyHz: 990, duration: 70 * time.Millisecond, volume: 0.18},
		{frequencyHz: 660, duration: 90 * time.Millisecond, volume: 0.18},
	})
	maintenanceStartPCM = synthesizeCue([]toneSpec{
		{frequencyHz: 520, duration: 120 * time.Millisecond, volume: 0.16},
		{frequencyHz: 520, duration: 120 * time.Millisecond, volume: 0.16},
	})
	maintenanceEndPCM = synthesizeCue([]toneSpec{
		{frequencyHz: 780, duration: 140 * time.Millisecond, volume: 0.16},
	})
	maintenanceFailedPCM = synthesizeCue([]toneSpec{
		{frequencyHz: 420, duration: 90 * time.Millisecond, volume: 0.2},
		{frequencyHz: 320, duration: 90 * time.Millisecond, volume: 0.2},
		{frequencyHz: 240, duration: 160 * time.Millisecond, volume: 0.2},
	})
)

// Samples returns the mono 16 kHz PCM for kind.
func Samples(kind Kind) []int16 {
	switch kind {
	case ClientConnected:
		return connectedPCM
	case ClientDisconnected:
		return disconnectedPCM
	case MaintenanceStart:
		return maintenanceStartPCM
	case MaintenanceEnd:
		return maintenanceEndPCM
	case MaintenanceFailed:
		return maintenanceFailedPCM
	default:
		return nil
	}
}

func synthesizeCue(parts []toneSpec) []int16 {
	if len(parts) == 0 {
		return nil
	}
	gap := samplesForDuration(22 * time.Millisecond)

	var pcm []int16
	for i, part := range parts {
		pcm = append(pcm, synthesizeTone(part)...)
		if i < len(parts)-1 {
			pcm = append(pcm, make([]int16, gap)...)
		}
	}
	return pcm
}

// synthesizeTone renders a sine with a linear attack and release of at most 5ms.
func synthesizeTone(tone toneSpec) []int16 {
	n := samplesForDuration(tone.duration)
	if n <= 0 || tone.frequencyHz <= 0 || tone.volume <= 0 {
		return nil
	}

	ramp := min(n/10, sampleRate/200)
	ramp = max(ramp, 1)

	pcm := make([]int16, n)
	for i := 0; i < n; i++ {
		envelope := 1.0
		if i < ramp {
			envelope = float64(i) / float64(ramp)
		}
		if tail := n - i - 1; tail < ramp {
			envelope = math.Min(envelope, float64(tail)/float64(ramp))
		}
		t := float64(i) / sampleRate
		pcm[i] = int16(math.Round(math.Sin(2*math.Pi*tone.frequencyHz*t) * tone.volume * envelope * 32767))
	}
	return pcm
}

func samplesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * sampleRate))
}
