package platform

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/discovery"
)

// fakeDiscovery implements only the ServerGroups method Detect calls;
// every other discovery.DiscoveryInterface method is left to the
// embedded nil interface and is never invoked by these tests.
type fakeDiscovery struct {
	discovery.DiscoveryInterface
	groups *metav1.APIGroupList
	err    error
}

func (f *fakeDiscovery) ServerGroups() (*metav1.APIGroupList, error) {
	return f.groups, f.err
}

func TestDetectReportsMetricsServerAvailable(t *testing.T) {
	d := &Detector{disc: &fakeDiscovery{groups: &metav1.APIGroupList{
		Groups: []metav1.APIGroup{{Name: "apps"}, {Name: "metrics.k8s.io"}},
	}}}

	caps, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.True(t, caps.MetricsServerAvailable)
}

func TestDetectReportsMetricsServerUnavailable(t *testing.T) {
	d := &Detector{disc: &fakeDiscovery{groups: &metav1.APIGroupList{
		Groups: []metav1.APIGroup{{Name: "apps"}},
	}}}

	caps, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.False(t, caps.MetricsServerAvailable)
}

func TestDetectTreatsPartialDiscoveryAsUnavailableNotFatal(t *testing.T) {
	d := &Detector{disc: &fakeDiscovery{err: &discovery.ErrGroupDiscoveryFailed{}}}

	caps, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.False(t, caps.MetricsServerAvailable)
}

func TestDetectReturnsHardErrorOnDiscoveryFailure(t *testing.T) {
	d := &Detector{disc: &fakeDiscovery{err: errors.New("apiserver unreachable")}}

	_, err := d.Detect(context.Background())
	assert.Error(t, err)
}
