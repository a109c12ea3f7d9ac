package utls_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	dialx "github.com/pedramktb/go-dialx"
	_ "github.com/pedramktb/go-dialx/drivers/utls"
)

func TestUTLSStageParams(t *testing.T) {
	driver, err := dialx.GetDriver("utls")
	require.NoError(t, err)

	_, err = driver(map[string]string{"servername": "example.com"}, true)
	require.Error(t, err, "server side rejected")

	_, err = driver(map[string]string{}, false)
	require.Error(t, err, "missing servername and cert")

	_, err = driver(map[string]string{"servername": "example.com", "hello": "netscape"}, false)
	require.Error(t, err, "unknown hello profile")

	_, err = driver(map[string]string{"cert": "zz"}, false)
	require.Error(t, err, "non-hex cert")

	_, err = driver(map[string]string{"servername": "example.com", "bogus": "1"}, false)
	require.Error(t, err, "unknown parameter")

	for _, hello := range []string{"chrome", "firefox", "ios", "android", "safari", "edge", "randomized", "randomizednoalpn"} {
		_, err = driver(map[string]string{"servername": "example.com", "hello": hello}, false)
		require.NoError(t, err, "hello profile %s", hello)
	}
}
