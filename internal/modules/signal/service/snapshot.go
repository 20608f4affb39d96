package service

// Snapshot — одно окно наблюдения рынка: состояние top-of-book, накопленный
// объём/оборот за тик и производные микроструктурные сигналы. После создания
// не мутируется.
type Snapshot struct {
	Bid       float64
	Ask       float64
	BidVolume float64
	AskVolume float64
	Spread    float64
	MidPrice  float64

	Volume   float64
	Turnover float64

	DBid  float64
	DAsk  float64
	BidCV float64
	AskCV float64

	// dVol/dTO — трекеры последней положительной дельты: неположительная
	// дельта не обнуляет значение, а переносит предыдущее.
	DVol float64
	DTO  float64

	AvgTrade float64

	MPB float64
	OIR float64
	VOI float64
}

// ring — кольцевой буфер снапшотов фиксированной ёмкости, вытеснение O(1).
type ring struct {
	buf   []Snapshot
	start int
	n     int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Snapshot, capacity)}
}

func (r *ring) Len() int { return r.n }

func (r *ring) Cap() int { return len(r.buf) }

// Push добавляет снапшот, вытесняя самый старый при заполненной ёмкости.
func (r *ring) Push(s Snapshot) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = s
		r.n++
		return
	}
	r.buf[r.start] = s
	r.start = (r.start + 1) % len(r.buf)
}

// At возвращает i-й снапшот от самого старого (i=0) к новейшему.
func (r *ring) At(i int) Snapshot {
	return r.buf[(r.start+i)%len(r.buf)]
}

// Last возвращает новейший снапшот.
func (r *ring) Last() (Snapshot, bool) {
	if r.n == 0 {
		return Snapshot{}, false
	}
	return r.At(r.n - 1), true
}
