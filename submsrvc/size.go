package submsrvc

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const gptqSizeFactor = 8

var sizePattern = regexp.MustCompile(`(\d\.)?\d+(b|m)`)

// paramsFromName guesses the parameter count in billions from names such
// as "llama-7b" or "opt-350m". It returns 0 when nothing matches.
func paramsFromName(modelID string) float64 {
	m := sizePattern.FindString(strings.ToLower(modelID))
	if m == "" {
		return 0
	}
	n, err := strconv.ParseFloat(m[:len(m)-1], 64)
	if err != nil {
		return 0
	}
	if m[len(m)-1] == 'm' {
		n /= 1e3
	}
	return n
}

func isGPTQ(modelID, precision string) bool {
	return precision == "GPTQ" || strings.Contains(strings.ToLower(modelID), "gptq")
}

// sizeInBillions converts a parameter count to billions. Quantized GPTQ
// weights are packed, so their count is scaled back up.
func sizeInBillions(params float64, modelID, precision string) float64 {
	if isGPTQ(modelID, precision) {
		params *= gptqSizeFactor
	}
	return math.Round(params*1e3) / 1e3
}
