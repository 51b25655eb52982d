package holes

import "github.com/Krimson/gnss-quality/internal/satellite"

// NoData отметка периода, в котором данных не ожидалось
const NoData = -1

// rule правило перехода для одной строки
type rule int

const (
	ruleAdvance       rule = iota // ни одно правило не подошло
	ruleIdleSkip                  // пусто, слежение не начато
	ruleAcquire                   // появились данные, начинаем слежение
	ruleGapCommit                 // пропуск номеров эпох во время слежения
	rulePartial                   // часть сигналов пустая
	ruleSilentVisible             // спутник виден, но молчит
	ruleFull                      // все сигналы на месте
	ruleSet                       // спутник ушел под маску

	ruleCount
)

var ruleNames = [ruleCount]string{
	ruleAdvance:       "advance",
	ruleIdleSkip:      "idle_skip",
	ruleAcquire:       "acquire",
	ruleGapCommit:     "gap_commit",
	rulePartial:       "partial",
	ruleSilentVisible: "silent_visible",
	ruleFull:          "full",
	ruleSet:           "set",
}

func (r rule) String() string {
	if r < 0 || r >= ruleCount {
		return "unknown"
	}
	return ruleNames[r]
}

// rowClass наличие наблюдений в строке
type rowClass struct {
	anyPresent bool
	allPresent bool
}

func classifyRow(values []float64) rowClass {
	c := rowClass{allPresent: len(values) > 0}
	for _, v := range values {
		if v > 0 {
			c.anyPresent = true
		} else {
			c.allPresent = false
		}
	}
	return c
}

// classify выбирает первое подходящее правило. Чистая функция.
func classify(c rowClass, tracking, gap bool, elevation, mask float64) rule {
	switch {
	case !c.anyPresent && !tracking:
		return ruleIdleSkip
	case c.anyPresent && !tracking:
		return ruleAcquire
	case c.anyPresent && gap:
		return ruleGapCommit
	case c.anyPresent && !c.allPresent:
		return rulePartial
	case !c.anyPresent && elevation > mask:
		return ruleSilentVisible
	case c.allPresent:
		return ruleFull
	case !c.anyPresent && elevation <= mask:
		return ruleSet
	}
	return ruleAdvance
}

// ledger фактические и потенциальные дыры по сигналам.
// Длины всех массивов всегда совпадают.
type ledger struct {
	actual    [][]int
	potential [][]int
}

func newLedger(signals int) ledger {
	l := ledger{
		actual:    make([][]int, signals),
		potential: make([][]int, signals),
	}
	for i := 0; i < signals; i++ {
		l.actual[i] = []int{NoData}
		l.potential[i] = []int{0}
	}
	return l
}

func (l *ledger) current() int {
	if len(l.actual) == 0 {
		return 0
	}
	return len(l.actual[0]) - 1
}

// charge добавляет n подтвержденных пропусков сигналу в текущем периоде
func (l *ledger) charge(signal, n int) {
	last := l.current()
	if l.actual[signal][last] < 0 {
		l.actual[signal][last] = n
		return
	}
	l.actual[signal][last] += n
}

func (l *ledger) chargeAll(n int) {
	for i := range l.actual {
		l.charge(i, n)
	}
}

// lift снимает отметку NoData с текущего периода при входе спутника в зону видимости
func (l *ledger) lift() {
	last := l.current()
	for i := range l.actual {
		if l.actual[i][last] < 0 {
			l.actual[i][last] = 0
		}
	}
}

// accrue копит неподтвержденный пропуск
func (l *ledger) accrue() {
	last := l.current()
	for i := range l.potential {
		l.potential[i][last]++
	}
}

// commit переносит потенциальные дыры в фактические и обнуляет потенциальные
func (l *ledger) commit() {
	for i := range l.potential {
		for j, p := range l.potential[i] {
			if p == 0 {
				continue
			}
			if l.actual[i][j] < 0 {
				l.actual[i][j] = p
			} else {
				l.actual[i][j] += p
			}
			l.potential[i][j] = 0
		}
	}
}

func (l *ledger) resetPotential() {
	for i := range l.potential {
		for j := range l.potential[i] {
			l.potential[i][j] = 0
		}
	}
}

func (l *ledger) markNoData() {
	last := l.current()
	for i := range l.actual {
		l.actual[i][last] = NoData
	}
}

// extend открывает новый период
func (l *ledger) extend(fill int) {
	for i := range l.actual {
		l.actual[i] = append(l.actual[i], fill)
		l.potential[i] = append(l.potential[i], 0)
	}
}

// state состояние прохода по строкам одного спутника
type state struct {
	prevSeq  int
	rows     int
	tracking bool
	hasData  bool
	holes    ledger
	stats    Stats
}

func newState(signals int) *state {
	return &state{
		holes: newLedger(signals),
	}
}

// step применяет одну строку и закрывает период при наполнении
func (s *state) step(e satellite.Epoch, p Params) rule {
	values := e.Signals
	if len(values) > len(s.holes.actual) {
		values = values[:len(s.holes.actual)]
	}

	class := classifyRow(values)
	gap := s.prevSeq+1 < e.Seq
	skipped := 0
	if gap {
		skipped = e.Seq - s.prevSeq - 1
	}

	r := classify(class, s.tracking, gap, e.Elevation, p.ElevationMask)
	records := p.PeriodRecords()

	switch r {
	case ruleIdleSkip:
		s.advance(skipped, false, records)

	case ruleAcquire:
		s.advance(skipped, false, records)
		s.tracking = true
		s.holes.lift()

	case ruleGapCommit:
		s.holes.commit()
		s.advance(skipped, true, records)
		s.stats.SkippedEpochs += skipped

	case rulePartial:
		for i, v := range values {
			if v <= 0 {
				s.holes.charge(i, 1)
			}
		}
		s.holes.commit()

	case ruleSilentVisible:
		s.holes.accrue()

	case ruleFull:
		s.holes.commit()

	case ruleSet:
		if !s.hasData {
			s.holes.markNoData()
		}
		s.holes.resetPotential()
		s.tracking = false
	}

	if class.anyPresent && !s.hasData {
		s.hasData = true
	}

	s.prevSeq = e.Seq
	s.stats.Rows++
	s.stats.Rules[r]++
	s.advance(1, false, records)

	return r
}

// advance отсчитывает n прошедших эпох, закрывая периоды по мере наполнения.
// При charge каждая пропущенная эпоха записывается как дыра в свой период.
func (s *state) advance(n int, charge bool, records int) {
	for n > 0 {
		k := records - s.rows
		if k > n {
			k = n
		}
		if charge {
			s.holes.chargeAll(k)
		}
		s.rows += k
		n -= k
		if s.rows >= records {
			s.flush(records)
		}
	}
}

// flush закрывает заполненные периоды
func (s *state) flush(records int) {
	fill := NoData
	if s.tracking {
		fill = 0
	}

	for n := s.rows / records; n > 0; n-- {
		s.holes.extend(fill)
	}
	s.rows %= records
	s.hasData = false
}
