package browser

// stealthScript runs before any page script on every new document.
// It masks the common automation fingerprints checked by bot detectors.
const stealthScript = `(() => {
  Object.defineProperty(navigator, 'webdriver', { get: () => false });
  window.chrome = window.chrome || { runtime: {} };
  Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
  Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });

  const permissions = window.navigator.permissions;
  if (permissions && permissions.query) {
    const query = permissions.query.bind(permissions);
    permissions.query = (parameters) => (
      parameters && parameters.name === 'notifications'
        ? Promise.resolve({ state: Notification.permission })
        : query(parameters)
    );
  }

  const patch = (proto) => {
    if (!proto) {
      return;
    }
    const getParameter = proto.getParameter;
    proto.getParameter = function (parameter) {
      if (parameter === 37445) {
        return 'Intel Inc.';
      }
      if (parameter === 37446) {
        return 'Intel Iris OpenGL Engine';
      }
      return getParameter.call(this, parameter);
    };
  };
  patch(window.WebGLRenderingContext && WebGLRenderingContext.prototype);
  patch(window.WebGL2RenderingContext && WebGL2RenderingContext.prototype);
})();`
