//go:build js && wasm

package main

import (
	"encoding/base64"
	"fmt"
	"syscall/js"

	"github.com/himanishpuri/SubPrint/pkg/subprint/audio"
	"github.com/himanishpuri/SubPrint/pkg/subprint/fingerprint"
)

// Error codes returned to JavaScript
const (
	ErrorNone = iota
	ErrorInvalidArgs
	ErrorTooShort
)

// generateSignature fingerprints audio samples in the browser. The data
// object has the shape POST /api/match expects.
// Returns: {error: number, data: {hashes, reliabilities, length, durationMs} | string}
func generateSignature(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return makeErrorResponse(ErrorInvalidArgs, "Expected 3 arguments: audioArray, sampleRate, channels")
	}

	audioDataJS := args[0]
	sampleRateJS := args[1]
	channelsJS := args[2]

	if audioDataJS.Type() != js.TypeObject {
		return makeErrorResponse(ErrorInvalidArgs, "audioArray must be an Array or Float64Array")
	}
	if sampleRateJS.Type() != js.TypeNumber || channelsJS.Type() != js.TypeNumber {
		return makeErrorResponse(ErrorInvalidArgs, "sampleRate and channels must be numbers")
	}

	sampleRate := sampleRateJS.Int()
	channels := channelsJS.Int()
	if channels < 1 || channels > 2 {
		return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("Channels must be 1 (mono) or 2 (stereo), got: %d", channels))
	}

	length := audioDataJS.Length()
	if length == 0 {
		return makeErrorResponse(ErrorInvalidArgs, "audioArray is empty")
	}

	samples := make([]float64, length)
	for i := 0; i < length; i++ {
		val := audioDataJS.Index(i)
		if val.Type() != js.TypeNumber {
			return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("audioArray element %d is not a number", i))
		}
		samples[i] = val.Float()
	}

	mono, err := audio.Downmix(samples, channels)
	if err != nil {
		return makeErrorResponse(ErrorInvalidArgs, err.Error())
	}
	mono, err = audio.Resample(mono, sampleRate, fingerprint.SampleRate)
	if err != nil {
		return makeErrorResponse(ErrorInvalidArgs, err.Error())
	}

	sig, err := fingerprint.Generate(mono)
	if err != nil {
		return makeErrorResponse(ErrorTooShort, fmt.Sprintf("Failed to fingerprint audio: %v", err))
	}

	data := js.Global().Get("Object").New()
	data.Set("hashes", base64.StdEncoding.EncodeToString(sig.HashBytes()))
	data.Set("reliabilities", base64.StdEncoding.EncodeToString(sig.ReliabilityBytes()))
	data.Set("length", sig.Len())
	data.Set("durationMs", sig.DurationMs)

	result := js.Global().Get("Object").New()
	result.Set("error", ErrorNone)
	result.Set("data", data)
	return result
}

func makeErrorResponse(errorCode int, message string) js.Value {
	result := js.Global().Get("Object").New()
	result.Set("error", errorCode)
	result.Set("data", message)
	return result
}

func main() {
	console := js.Global().Get("console")
	logf := func(method, msg string) {
		if !console.IsUndefined() {
			console.Call(method, msg)
		}
	}

	js.Global().Set("generateSignature", js.FuncOf(generateSignature))
	logf("log", "SubPrint WASM module: generateSignature registered")

	window := js.Global().Get("window")
	if window.IsUndefined() {
		logf("error", "window object is undefined")
	} else {
		event := js.Global().Get("CustomEvent").New("wasmReady", js.Global().Get("Object").New())
		window.Call("dispatchEvent", event)
	}

	select {}
}
