package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/gorilla/mux"

	"github.com/sarchlab/gvt/gtt/shadow"
)

var _ = Describe("Monitor", func() {
	var m *Monitor

	BeforeEach(func() {
		m = NewMonitor()
		m.RegisterEngine(shadow.MakeBuilder().
			WithGGTTEntryCount(1 << 10).
			WithOutOfSyncSlotCount(8).
			Build("Engine1"))
	})

	It("should list registered engines", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/list_engines", nil)

		m.listEngines(w, r)

		var names []string
		Expect(json.Unmarshal(w.Body.Bytes(), &names)).To(Succeed())
		Expect(names).To(Equal([]string{"Engine1"}))
	})

	It("should serve engine stats", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/engine/Engine1", nil)
		r = mux.SetURLVars(r, map[string]string{"name": "Engine1"})

		m.engineStats(w, r)

		var stats shadow.Stats
		Expect(json.Unmarshal(w.Body.Bytes(), &stats)).To(Succeed())
		Expect(stats.Name).To(Equal("Engine1"))
		Expect(stats.OOSSlotsFree).To(BeNumerically(">", 0))
	})

	It("should 404 on an unknown engine", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/engine/nope", nil)
		r = mux.SetURLVars(r, map[string]string{"name": "nope"})

		m.engineStats(w, r)

		Expect(w.Code).To(Equal(http.StatusNotFound))
	})
})
