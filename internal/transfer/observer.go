package transfer

// File is a finished transfer. Data is only set on the receiving side.
type File struct {
	ID   string
	Name string
	Size int64
	Hash string
	Data []byte
}

// Observer receives lifecycle events for each file. Callbacks run on the
// goroutine driving the transfer and must not call back into it.
type Observer interface {
	OnFileStart(info FileInfo)
	OnProgress(info FileInfo, bytes int64)
	OnFileComplete(f File)
	OnFileError(info FileInfo, err error)
}

// NopObserver ignores every event. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) OnFileStart(FileInfo)        {}
func (NopObserver) OnProgress(FileInfo, int64)  {}
func (NopObserver) OnFileComplete(File)         {}
func (NopObserver) OnFileError(FileInfo, error) {}

// Tee fans every event out to each observer in order.
func Tee(observers ...Observer) Observer {
	return tee(observers)
}

type tee []Observer

func (t tee) OnFileStart(info FileInfo) {
	for _, o := range t {
		o.OnFileStart(info)
	}
}

func (t tee) OnProgress(info FileInfo, bytes int64) {
	for _, o := range t {
		o.OnProgress(info, bytes)
	}
}

func (t tee) OnFileComplete(f File) {
	for _, o := range t {
		o.OnFileComplete(f)
	}
}

func (t tee) OnFileError(info FileInfo, err error) {
	for _, o := range t {
		o.OnFileError(info, err)
	}
}
