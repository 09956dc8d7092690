// Package testutil provides testing infrastructure for gowizard applications.
//
// # Full application
//
// AppSupport starts the whole application on ephemeral ports and stops it
// when the test ends:
//
//	func TestHello(t *testing.T) {
//	    app := testutil.NewAppSupport[*HelloConfig](t, HelloApp{}, "testdata/hello.yml")
//	    resp, err := http.Get(app.URL("/hello-world"))
//	    ...
//	}
//
// # Single resource
//
// ResourceHarness serves resources on an httptest.Server with the default
// exception mappers, without loading a configuration:
//
//	h := testutil.NewResourceHarness(t, testutil.WithResource(NewHelloResource("Hello, %s!")))
//	resp, body := h.Request(http.MethodGet, "/hello-world?name=Ann", nil)
//
// # Managed objects
//
// RecordingManaged records start and stop calls, and T(t).Setup starts a
// managed object and stops it when the test ends:
//
//	rec := &testutil.Recorder{}
//	testutil.T(t).Setup(testutil.NewRecordingManaged("db", rec))
package testutil
