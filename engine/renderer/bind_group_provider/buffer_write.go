package bind_group_provider

// BufferWrite describes a single queued buffer write. The target is Buffer when set,
// otherwise the buffer bound at Binding on Provider. Offset is relative to the buffer start.
type BufferWrite struct {
	Provider BindGroupProvider
	Binding  int
	Buffer   Buffer
	Offset   uint64
	Data     []byte
}

// Target resolves the buffer the write lands in.
//
// Returns:
//   - Buffer: the target buffer, or nil if neither Buffer nor a provider binding is set
func (w BufferWrite) Target() Buffer {
	if w.Buffer != nil {
		return w.Buffer
	}
	if w.Provider == nil {
		return nil
	}
	return w.Provider.Buffer(w.Binding)
}
