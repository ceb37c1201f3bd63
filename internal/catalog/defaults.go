package catalog

// Default returns the page's built-in catalog. Locators are relative to the
// site origin and are resolved with Resolve before fetching.
func Default() *Catalog {
	c, err := New(
		Entry{Key: "media1", Locator: "assets/1.jpeg"},
		Entry{Key: "media2", Locator: "assets/2.jpeg"},
		Entry{Key: "media3", Locator: "assets/3.jpeg"},
		Entry{Key: "media5", Locator: "assets/5.jpeg"},
		Entry{Key: "media7", Locator: "assets/12.jpeg"},
		Entry{Key: "media8", Locator: "assets/2.mp4"},
		Entry{Key: "media9", Locator: "assets/1.mp4"},
	)
	if err != nil {
		panic(err)
	}
	return c
}
