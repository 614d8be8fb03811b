// Package devicemodel is the closed lookup table from device product
// identifier (e.g. "iPhone15,2") to display characteristics used by the
// viewer page generator.
package devicemodel

import "strings"

// DisplayStyle is the device-frame CSS skin a DisplayInfo selects.
type DisplayStyle string

// Supported device-frame styles.
const (
	StyleHomeButton     DisplayStyle = "homeButton"
	StyleNotch          DisplayStyle = "notch"
	StyleDynamicIsland  DisplayStyle = "dynamicIsland"
)

// DisplayInfo describes a device's screen for the purposes of generating a
// device-shaped viewer skin and serving /api/info.
type DisplayInfo struct {
	Name         string
	ScreenWidth  int
	ScreenHeight int
	Style        DisplayStyle
	CornerRadius int
}

// Aspect returns height/width, the ratio the viewer scales its CSS frame
// by.
func (d DisplayInfo) Aspect() float64 {
	if d.ScreenWidth == 0 {
		return 0
	}
	return float64(d.ScreenHeight) / float64(d.ScreenWidth)
}

var defaultDynamicIsland = DisplayInfo{
	Name:         "iPhone",
	ScreenWidth:  1179,
	ScreenHeight: 2556,
	Style:        StyleDynamicIsland,
	CornerRadius: 55,
}

var defaultIPad = DisplayInfo{
	Name:         "iPad",
	ScreenWidth:  1620,
	ScreenHeight: 2160,
	Style:        StyleHomeButton,
	CornerRadius: 40,
}

// database is a representative seed of current product identifiers. It is
// deliberately not exhaustive: Lookup only needs to be a total function,
// and the fallback rules below cover everything this table doesn't.
var database = map[string]DisplayInfo{
	"iPhone8,1":  {Name: "iPhone 6s", ScreenWidth: 750, ScreenHeight: 1334, Style: StyleHomeButton, CornerRadius: 0},
	"iPhone10,3": {Name: "iPhone X", ScreenWidth: 1125, ScreenHeight: 2436, Style: StyleNotch, CornerRadius: 39},
	"iPhone10,6": {Name: "iPhone X", ScreenWidth: 1125, ScreenHeight: 2436, Style: StyleNotch, CornerRadius: 39},
	"iPhone12,1": {Name: "iPhone 11", ScreenWidth: 828, ScreenHeight: 1792, Style: StyleNotch, CornerRadius: 41},
	"iPhone13,2": {Name: "iPhone 12", ScreenWidth: 1170, ScreenHeight: 2532, Style: StyleNotch, CornerRadius: 47},
	"iPhone14,5": {Name: "iPhone 13", ScreenWidth: 1170, ScreenHeight: 2532, Style: StyleNotch, CornerRadius: 47},
	"iPhone15,2": {Name: "iPhone 14 Pro", ScreenWidth: 1179, ScreenHeight: 2556, Style: StyleDynamicIsland, CornerRadius: 55},
	"iPhone15,3": {Name: "iPhone 14 Pro Max", ScreenWidth: 1290, ScreenHeight: 2796, Style: StyleDynamicIsland, CornerRadius: 60},
	"iPhone16,1": {Name: "iPhone 15 Pro", ScreenWidth: 1179, ScreenHeight: 2556, Style: StyleDynamicIsland, CornerRadius: 55},
	"iPhone16,2": {Name: "iPhone 15 Pro Max", ScreenWidth: 1290, ScreenHeight: 2796, Style: StyleDynamicIsland, CornerRadius: 60},
	"iPhone17,3": {Name: "iPhone 16", ScreenWidth: 1179, ScreenHeight: 2556, Style: StyleDynamicIsland, CornerRadius: 55},
	"iPad13,1":   {Name: "iPad Air (4th gen)", ScreenWidth: 1640, ScreenHeight: 2360, Style: StyleHomeButton, CornerRadius: 18},
	"iPad14,1":   {Name: "iPad mini (6th gen)", ScreenWidth: 1488, ScreenHeight: 2266, Style: StyleHomeButton, CornerRadius: 18},
}

// Lookup resolves a product identifier to its DisplayInfo. It never fails:
// unknown "iPhone*" identifiers default to a dynamic-island 1179x2556
// entry; identifiers prefixed "iPad" default to a home-button 1620x2160
// entry; anything else shares the iPhone default.
func Lookup(productID string) DisplayInfo {
	if info, ok := database[productID]; ok {
		return info
	}

	if strings.HasPrefix(productID, "iPad") {
		info := defaultIPad
		return info
	}

	info := defaultDynamicIsland
	return info
}
