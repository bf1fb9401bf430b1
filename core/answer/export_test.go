package answer

// SetFileIDGenerator replaces the generator of file ids until restore is called.
func SetFileIDGenerator(gen func() string) (restore func()) {
	orig := newFileID
	newFileID = gen
	return func() { newFileID = orig }
}
