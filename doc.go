/*
Package trapdoc packs a camera-trap photograph, its acquisition metadata and a set
of polygon annotations into a single portable SVG container, and recovers all three
later. The photograph travels as a base64 payload, the metadata as a literal string
and every annotation as a stroke-colored path element whose coordinates are rescaled
between the declared size of the embedded bitmap and its true pixel size.

The package provides a command line interface for batch conversions between raw
photographs, containers and flattened previews. To check the supported commands type:

	$ trapdoc --help

In case you wish to integrate the API in a self constructed environment here is a
simple example:

	package main

	import (
		"fmt"
		"github.com/trapdoc/trapdoc"
	)

	func main() {
		img, err := trapdoc.OpenImage("5c173ff2.2020-06-20_21-33-24.jpg")
		if err != nil {
			fmt.Printf("Error loading the photo: %s", err.Error())
			return
		}

		if err := img.WriteContainer("5c173ff2.2020-06-20_21-33-24.svg", nil); err != nil {
			fmt.Printf("Error packing the photo: %s", err.Error())
		}
	}
*/
package trapdoc
